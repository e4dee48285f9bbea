package tilestore

import (
	"fmt"

	"github.com/airbusgeo/rastercache"
	"github.com/fxamacker/cbor/v2"
)

const manifestVersion = 1

// Manifest describes a tiled raster. It is stored CBOR encoded under
// <prefix>/manifest.
type Manifest struct {
	Version     int      `cbor:"version"`
	SizeX       int      `cbor:"size_x"`
	SizeY       int      `cbor:"size_y"`
	BlockSizeX  int      `cbor:"block_size_x"`
	BlockSizeY  int      `cbor:"block_size_y"`
	Bands       int      `cbor:"bands"`
	DataType    string   `cbor:"data_type"`
	Compression string   `cbor:"compression"`
	NoData      *float64 `cbor:"nodata,omitempty"`
}

var (
	manifestEnc cbor.EncMode
	manifestDec cbor.DecMode
)

func init() {
	var err error
	//deterministic so that identical rasters have identical manifests
	if manifestEnc, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if manifestDec, err = (cbor.DecOptions{}).DecMode(); err != nil {
		panic(err)
	}
}

func newManifest(st rastercache.DatasetStructure, c Compression, nodata *float64) Manifest {
	return Manifest{
		Version:     manifestVersion,
		SizeX:       st.SizeX,
		SizeY:       st.SizeY,
		BlockSizeX:  st.BlockSizeX,
		BlockSizeY:  st.BlockSizeY,
		Bands:       st.NBands,
		DataType:    st.DataType.String(),
		Compression: c.String(),
		NoData:      nodata,
	}
}

func (m Manifest) encode() ([]byte, error) {
	return manifestEnc.Marshal(m)
}

func decodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := manifestDec.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("cbor.unmarshal: %w", err)
	}
	if m.Version != manifestVersion {
		return m, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return m, nil
}

// Structure returns the raster layout described by the manifest
func (m Manifest) Structure() (rastercache.DatasetStructure, error) {
	dt, err := rastercache.ParseDataType(m.DataType)
	if err != nil {
		return rastercache.DatasetStructure{}, err
	}
	st := rastercache.DatasetStructure{
		BandStructure: rastercache.BandStructure{
			SizeX:      m.SizeX,
			SizeY:      m.SizeY,
			BlockSizeX: m.BlockSizeX,
			BlockSizeY: m.BlockSizeY,
			DataType:   dt,
		},
		NBands: m.Bands,
	}
	return st, st.Validate()
}
