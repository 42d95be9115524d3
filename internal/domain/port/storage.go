package port

import "context"

type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket string, objectKey string, destPath string) error
}
