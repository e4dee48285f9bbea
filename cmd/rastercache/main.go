// Command rastercache creates, scans and copies tiled rasters through a
// shared block cache.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/airbusgeo/rastercache"
	"github.com/airbusgeo/rastercache/log/zaplog"
	"github.com/airbusgeo/rastercache/tilestore"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cacheMax string
var readCacheEntries int
var verbose bool

var logger = zap.NewNop()

func init() {
	rootCommand.PersistentFlags().StringVar(&cacheMax, "cachemax", "", "block cache budget, e.g. 512MB or 10% (default $"+rastercache.EnvCacheMax+" or 5% of RAM)")
	rootCommand.PersistentFlags().IntVar(&readCacheEntries, "readcache", 256, "number of objects cached in front of remote stores (0 to disable)")
	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCommand.AddCommand(createCommand, scanCommand, copyCommand)
}

func main() {
	err := rootCommand.ExecuteContext(context.Background())
	logger.Sync() //nolint:errcheck
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var rootCommand = &cobra.Command{
	Use:           "rastercache",
	Short:         "tiled raster tooling backed by a shared block cache",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		l, err := cfg.Build()
		if err != nil {
			return fmt.Errorf("zap.build: %w", err)
		}
		logger = l
		return nil
	},
}

func newCache() (*rastercache.Cache, error) {
	opts := []rastercache.Option{rastercache.WithLogger(zaplog.New(logger))}
	if cacheMax != "" {
		cs, err := rastercache.ParseCacheSize(cacheMax)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rastercache.CacheMax(cs))
	}
	return rastercache.New(opts...)
}

// openRaster opens the tiled raster at url. The returned function releases
// the underlying store.
func openRaster(ctx context.Context, url string) (*tilestore.Raster, func() error, error) {
	loc, err := parseLocation(url)
	if err != nil {
		return nil, nil, err
	}
	st, closer, err := openStore(ctx, loc, readCacheEntries)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", loc, err)
	}
	ts, err := tilestore.Open(ctx, st, loc.prefix)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("open %s: %w", loc, err)
	}
	return ts, closer, nil
}

func createRaster(ctx context.Context, url string, structure rastercache.DatasetStructure, opts ...tilestore.Option) (*tilestore.Raster, func() error, error) {
	loc, err := parseLocation(url)
	if err != nil {
		return nil, nil, err
	}
	st, closer, err := openStore(ctx, loc, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", loc, err)
	}
	ts, err := tilestore.Create(ctx, st, loc.prefix, structure, opts...)
	if err != nil {
		closer()
		return nil, nil, fmt.Errorf("create %s: %w", loc, err)
	}
	return ts, closer, nil
}

var (
	width, height   int
	blockSize       int
	bands           int
	dataType        string
	compression     string
	nodata          float64
	overwrite       bool
	copyCompression string
)

func init() {
	createCommand.Flags().IntVar(&width, "width", 0, "raster width in pixels")
	createCommand.Flags().IntVar(&height, "height", 0, "raster height in pixels")
	createCommand.Flags().IntVarP(&blockSize, "block", "b", 256, "block width and height")
	createCommand.Flags().IntVar(&bands, "bands", 1, "number of bands")
	createCommand.Flags().StringVarP(&dataType, "type", "t", "Byte", "pixel data type")
	createCommand.Flags().StringVarP(&compression, "compression", "c", "deflate", "block compression (none, deflate, zstd, snappy)")
	createCommand.Flags().Float64Var(&nodata, "nodata", 0, "value of unwritten pixels")
	createCommand.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing manifest")
	createCommand.MarkFlagRequired("width")  //nolint:errcheck
	createCommand.MarkFlagRequired("height") //nolint:errcheck

	copyCommand.Flags().StringVarP(&copyCompression, "compression", "c", "", "block compression of the copy (default: same as source)")
	copyCommand.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing destination manifest")
}

var createCommand = &cobra.Command{
	Use:   "create [flags] url",
	Short: "create an empty tiled raster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dt, err := rastercache.ParseDataType(dataType)
		if err != nil {
			return err
		}
		comp, err := tilestore.ParseCompression(compression)
		if err != nil {
			return err
		}
		structure := rastercache.DatasetStructure{
			BandStructure: rastercache.BandStructure{
				SizeX: width, SizeY: height,
				BlockSizeX: blockSize, BlockSizeY: blockSize,
				DataType: dt,
			},
			NBands: bands,
		}
		opts := []tilestore.Option{tilestore.WithCompression(comp)}
		if cmd.Flags().Changed("nodata") {
			opts = append(opts, tilestore.NoData(nodata))
		}
		if overwrite {
			opts = append(opts, tilestore.Overwrite())
		}
		_, closer, err := createRaster(cmd.Context(), args[0], structure, opts...)
		if err != nil {
			return err
		}
		logger.Info("created raster", zap.String("url", args[0]),
			zap.Int("width", width), zap.Int("height", height), zap.Int("bands", bands),
			zap.Stringer("type", dt), zap.Stringer("compression", comp))
		return closer()
	},
}

var scanCommand = &cobra.Command{
	Use:   "scan [flags] url",
	Short: "read a raster row by row through the block cache and report cache efficiency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ts, closer, err := openRaster(ctx, args[0])
		if err != nil {
			return err
		}
		defer closer() //nolint:errcheck
		c, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close(ctx) //nolint:errcheck
		r, err := c.Open(args[0], ts)
		if err != nil {
			return err
		}
		rows, err := scan(ctx, r)
		if err != nil {
			return err
		}
		st := c.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "rows read:      %d\n", rows)
		fmt.Fprintf(cmd.OutOrStdout(), "blocks decoded: %d\n", st.Misses)
		fmt.Fprintf(cmd.OutOrStdout(), "cache hits:     %d\n", st.Hits)
		fmt.Fprintf(cmd.OutOrStdout(), "evictions:      %d\n", st.Evictions)
		fmt.Fprintf(cmd.OutOrStdout(), "reduction:      %.1fx\n", reduction(st))
		return r.Close(ctx)
	},
}

// scan reads every pixel row of every band, returning the number of rows read
func scan(ctx context.Context, r *rastercache.Raster) (int, error) {
	st := r.Structure()
	row := make([]byte, st.SizeX*st.DataType.Size())
	n := 0
	for band := 0; band < st.NBands; band++ {
		for y := 0; y < st.SizeY; y++ {
			if err := r.ReadRegion(ctx, band, 0, y, st.SizeX, 1, row); err != nil {
				return n, fmt.Errorf("band %d row %d: %w", band, y, err)
			}
			n++
		}
	}
	return n, nil
}

// reduction is the ratio between block accesses and actual decodes
func reduction(st rastercache.Stats) float64 {
	if st.Misses == 0 {
		return 0
	}
	return float64(st.Hits+st.Misses) / float64(st.Misses)
}

var copyCommand = &cobra.Command{
	Use:   "copy [flags] src dst",
	Short: "copy a raster block by block into a new tiled raster",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		src, srcCloser, err := openRaster(ctx, args[0])
		if err != nil {
			return err
		}
		defer srcCloser() //nolint:errcheck

		comp, err := tilestore.ParseCompression(src.Manifest().Compression)
		if err != nil {
			return err
		}
		if copyCompression != "" {
			if comp, err = tilestore.ParseCompression(copyCompression); err != nil {
				return err
			}
		}
		opts := []tilestore.Option{tilestore.WithCompression(comp)}
		if nd := src.Manifest().NoData; nd != nil {
			opts = append(opts, tilestore.NoData(*nd))
		}
		if overwrite {
			opts = append(opts, tilestore.Overwrite())
		}
		dst, dstCloser, err := createRaster(ctx, args[1], src.Structure(), opts...)
		if err != nil {
			return err
		}
		defer dstCloser() //nolint:errcheck

		c, err := newCache()
		if err != nil {
			return err
		}
		defer c.Close(ctx) //nolint:errcheck
		blocks, err := copyRaster(ctx, c, args[0], src, args[1], dst)
		if err != nil {
			return err
		}
		logger.Info("copied raster", zap.String("src", args[0]), zap.String("dst", args[1]),
			zap.Int("blocks", blocks), zap.Uint64("writebacks", c.Stats().Writebacks))
		return nil
	},
}

// copyRaster copies src into dst one block window at a time through c
func copyRaster(ctx context.Context, c *rastercache.Cache, srcID string, src rastercache.BlockStore, dstID string, dst rastercache.BlockStore) (int, error) {
	rs, err := c.Open(srcID, src)
	if err != nil {
		return 0, err
	}
	defer rs.Close(ctx) //nolint:errcheck
	rd, err := c.Open(dstID, dst)
	if err != nil {
		return 0, err
	}
	st := rs.Structure()
	ps := st.DataType.Size()
	buf := make([]byte, st.BlockSizeX*st.BlockSizeY*ps)
	n := 0
	for band := 0; band < st.NBands; band++ {
		for bl, ok := st.FirstBlock(), true; ok; bl, ok = bl.Next() {
			win := buf[:bl.W*bl.H*ps]
			if err := rs.ReadRegion(ctx, band, bl.X0, bl.Y0, bl.W, bl.H, win); err != nil {
				rd.Close(ctx) //nolint:errcheck
				return n, err
			}
			if err := rd.WriteRegion(ctx, band, bl.X0, bl.Y0, bl.W, bl.H, win); err != nil {
				rd.Close(ctx) //nolint:errcheck
				return n, err
			}
			n++
		}
	}
	return n, rd.Close(ctx)
}
