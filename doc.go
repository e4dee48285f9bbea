// Package rastercache is a bounded-memory cache of decoded raster blocks.
//
// A Cache holds decoded blocks of any number of rasters under a single byte
// budget. Each raster is a BlockStore (a format driver able to decode and
// encode individual blocks) attached to the cache with Cache.Open. Pixel
// access goes through the cache, either block by block with Raster.GetBlock,
// or for arbitrary windows with Raster.ReadRegion and Raster.WriteRegion,
// which decompose the window into the blocks it intersects.
//
// Blocks are evicted in least-recently-used order when room is needed.
// Modified blocks are dirty: they are written back to their store when
// evicted, when the raster is flushed, or when it is closed. A dirty block
// is never dropped before its store acknowledged the write.
//
// The budget is configured with the CacheMax option, or through the
// RASTERCACHE_CACHEMAX environment variable ("800", "512MB", "20%").
//
// The tilestore package provides a BlockStore keeping one object per block
// in any store.Store backend (local directory, bbolt, GCS, S3, redis).
package rastercache
