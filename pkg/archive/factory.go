package archive

import (
	"context"
	"fmt"
)

// Config selects and configures a backend.
type Config struct {
	Driver Driver   `yaml:"driver" envconfig:"DRIVER" validate:"omitempty,oneof=memory fs s3"`
	Root   string   `yaml:"root" envconfig:"ROOT"`
	S3     S3Config `yaml:"s3" envconfig:"S3"`
}

// Open creates the Store selected by cfg. The filesystem backend is the
// default.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown archive driver %s", cfg.Driver)
	}
}
