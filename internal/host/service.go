package host

import "context"

// Service is a mountable unit of behavior: a lifecycle plus a feature table
// of verb/path-pattern handlers. Concrete services embed *BaseService for
// the lifecycle bookkeeping and implement Start/Stop/Features themselves.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Features() *FeatureTable
}
