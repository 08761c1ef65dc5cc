package main

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"strings"

	"github.com/vango-dev/datarouter/internal/config"
	"github.com/vango-dev/datarouter/internal/errors"
	"github.com/vango-dev/datarouter/pkg/routeconfig"
	"github.com/vango-dev/datarouter/pkg/router"
)

// project is a loaded config together with its route tree.
type project struct {
	config   *config.Config
	location string
	file     *routeconfig.File
	manifest *router.Manifest
	basename string
}

// newS3Client is replaced in tests.
var newS3Client = func(cfg config.S3Config) routeconfig.S3API {
	return routeconfig.NewS3Client(routeconfig.S3Options{
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		UsePathStyle: cfg.UsePathStyle,
	})
}

// loadConfig reads the config named by --config, or the one of the
// project containing the working directory. Without a config file the
// defaults are used as long as --routes names the route file.
func loadConfig(flags *projectFlags) (*config.Config, error) {
	if flags.config != "" {
		st, err := os.Stat(flags.config)
		if err != nil {
			return nil, errors.New("E141").WithDetail("No config file at " + flags.config)
		}
		if st.IsDir() {
			return config.Load(flags.config)
		}
		return config.LoadFile(flags.config)
	}

	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		var e *errors.Error
		if flags.routes != "" && stderrors.As(err, &e) && e.Code == "E141" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// loadProject loads the config and the route tree it points to.
func loadProject(ctx context.Context, flags *projectFlags) (*project, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	if flags.basename != "" {
		cfg.Basename = flags.basename
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	location := cfg.RoutesLocation()
	if flags.routes != "" {
		location = flags.routes
	}

	src, err := routeconfig.Open(location, func() routeconfig.S3API { return newS3Client(cfg.S3) })
	if err != nil {
		return nil, errors.New("E105").Wrap(err).WithSuggestion("Use s3://bucket/key")
	}
	file, err := src.Load(ctx)
	if err != nil {
		return nil, routeFileError(location, err)
	}
	m, err := file.Manifest()
	if err != nil {
		return nil, errors.New("E103").Wrap(err).WithSuggestion("Check the routes declared in " + location)
	}

	basename := file.Basename
	if cfg.Basename != "" {
		basename = cfg.Basename
	}
	return &project{
		config:   cfg,
		location: location,
		file:     file,
		manifest: m,
		basename: basename,
	}, nil
}

func routeFileError(location string, err error) error {
	var pe *routeconfig.ParseError
	switch {
	case stderrors.As(err, &pe):
		return errors.New("E102").Wrap(pe.Err).WithLocationFromError(location, pe.Data, pe.Err)
	case stderrors.Is(err, routeconfig.ErrUnsupportedFormat):
		return errors.New("E104").Wrap(err)
	case stderrors.Is(err, fs.ErrNotExist):
		return errors.New("E101").
			WithDetail("No route file at " + location).
			WithSuggestion("Set routes in " + config.ConfigFileName + " or pass --routes")
	case strings.HasPrefix(location, "s3://"):
		return errors.New("E105").Wrap(err)
	}
	return errors.New("E101").Wrap(err)
}
