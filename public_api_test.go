package goCartes_test

import (
	"context"
	"io"
	"testing"

	goCartes "github.com/MrEthical07/goCartes"
)

// Guards the exported surface that dashboards compile against.
func TestPublicAPISurfaceCompile(t *testing.T) {
	_ = goCartes.New
	_ = goCartes.DefaultConfig

	var _ *goCartes.Client
	var _ goCartes.Config
	var _ goCartes.Carte
	var _ goCartes.Statistics
	var _ goCartes.ImportResult
	var _ goCartes.EventSink

	var _ error = goCartes.ErrInvalidCredentials
	var _ error = goCartes.ErrSessionExpired
	var _ error = goCartes.ErrPermissionDenied
	var _ error = goCartes.ErrNetwork
	var _ error = goCartes.ErrTimeout

	var _ func(*goCartes.Client, context.Context, string, string) (*goCartes.User, error) = (*goCartes.Client).Login
	var _ func(*goCartes.Client, context.Context) error = (*goCartes.Client).Logout
	var _ func(*goCartes.Client, context.Context) (*goCartes.User, error) = (*goCartes.Client).Initialize
	var _ func(*goCartes.Client, context.Context) (goCartes.Statistics, error) = (*goCartes.Client).RefreshStatistics
	var _ func(*goCartes.Client, context.Context, []goCartes.Carte) error = (*goCartes.Client).UpdateCartes
	var _ func(*goCartes.Client, context.Context, string, io.Reader, int64) (goCartes.ImportResult, error) = (*goCartes.Client).ImportCartes
	var _ func(*goCartes.Client, string) bool = (*goCartes.Client).HasPermission
}
