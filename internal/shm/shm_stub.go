//go:build !(linux && cgo)

package shm

import (
	"context"

	"github.com/pkg/errors"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// Reader is unavailable without cgo on Linux.
type Reader struct{}

// Open always fails on this platform.
func Open(Config) (*Reader, error) {
	return nil, errors.Wrap(ErrUnavailable, "shared memory needs linux and cgo")
}

func (*Reader) Read(context.Context) (types.Frame, error) { return types.Frame{}, ErrUnavailable }

func (*Reader) Detect(context.Context, types.Frame) ([]types.Detection, error) {
	return nil, ErrUnavailable
}

func (*Reader) Close() error { return nil }
