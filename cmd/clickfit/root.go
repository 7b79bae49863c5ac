package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kdsmith18542/clickfit/catalog"
	"github.com/kdsmith18542/clickfit/config"
	"github.com/kdsmith18542/clickfit/gallery"
	"github.com/kdsmith18542/clickfit/logging"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/upload/storage"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type globalFlags struct {
	envFile    string
	configFile string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           "clickfit",
		Short:         "Click Fit image gallery server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "optional YAML file overriding the environment")

	root.AddCommand(
		newServeCmd(flags),
		newImagesCmd(flags),
		newUsersCmd(flags),
		newMessagesCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clickfit %s\n", version)
		},
	}
}

func (f *globalFlags) load() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(f.envFile, f.configFile)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.New(logging.Options{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	return cfg, logger, nil
}

// images bundles the storage side shared by serve and the images commands.
type images struct {
	store   *storage.ObservableStorage
	catalog *catalog.Catalog
	policy  upload.Policy
	gallery *gallery.Service
}

// openImages opens storage and the catalog. Badger holds an exclusive lock
// on its directory, so when optionalCatalog is set and the catalog is in use
// (typically by a running server) the gallery runs without metadata.
func openImages(ctx context.Context, cfg *config.Config, logger *logging.Logger, optionalCatalog bool) (*images, error) {
	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	policy := upload.Policy{
		MaxFileSize:       cfg.MaxFileSize,
		MaxFiles:          cfg.MaxFiles,
		AllowedMIMETypes:  cfg.MIMETypes(),
		AllowedExtensions: cfg.Extensions(),
		VerifyContent:     cfg.VerifyContent,
	}
	imgs := &images{store: store, policy: policy}

	var galleryCatalog gallery.Catalog
	cat, err := catalog.Open(cfg.CatalogDir)
	switch {
	case err == nil:
		imgs.catalog = cat
		galleryCatalog = cat
	case optionalCatalog:
		logger.Warn("catalog unavailable, continuing without metadata", "dir", cfg.CatalogDir, "err", err)
	default:
		store.Close()
		return nil, err
	}
	imgs.gallery = gallery.NewService(store, galleryCatalog, policy, logger.Named("gallery"))
	return imgs, nil
}

func (i *images) Close() error {
	var cerr error
	if i.catalog != nil {
		cerr = i.catalog.Close()
	}
	if err := i.store.Close(); err != nil {
		return err
	}
	return cerr
}
