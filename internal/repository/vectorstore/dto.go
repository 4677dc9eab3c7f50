package vectorstore

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/kailas-cloud/vecingest/internal/domain"
)

// Hash field names.
const (
	fieldVector  = "__vector"
	fieldID      = "id"
	fieldImgName = "img_name"
)

// descriptorToHash converts a collection descriptor to a map for HSET.
func descriptorToHash(d domain.CollectionDescriptor) map[string]string {
	return map[string]string{
		"database":        d.Database,
		"name":            d.Collection,
		"metric":          string(d.Metric),
		"vector_dim":      strconv.Itoa(d.Dimension),
		"hnsw_m":          strconv.Itoa(d.Index.M),
		"hnsw_ef":         strconv.Itoa(d.Index.EFConstruction),
		"schema_revision": "1",
	}
}

// descriptorFromHash hydrates a descriptor from an HGETALL result map.
func descriptorFromHash(m map[string]string) (domain.CollectionDescriptor, error) {
	dim, err := strconv.Atoi(m["vector_dim"])
	if err != nil {
		return domain.CollectionDescriptor{}, fmt.Errorf("invalid vector_dim %q: %w", m["vector_dim"], err)
	}
	d := domain.CollectionDescriptor{
		Database:   m["database"],
		Collection: m["name"],
		Metric:     domain.DistanceMetric(m["metric"]),
		Dimension:  dim,
	}
	if v, err := strconv.Atoi(m["hnsw_m"]); err == nil {
		d.Index.M = v
	}
	if v, err := strconv.Atoi(m["hnsw_ef"]); err == nil {
		d.Index.EFConstruction = v
	}
	return d, nil
}

// vectorToHash converts a vector insert into hash fields: metadata plus the raw FLOAT32 blob.
func vectorToHash(v domain.VectorInsert) map[string]string {
	fields := make(map[string]string, len(v.Metadata)+2)
	for k, val := range v.Metadata {
		fields[k] = val
	}
	fields[fieldID] = strconv.FormatInt(v.ID, 10)
	fields[fieldVector] = vectorToBytes(v.Vector)
	return fields
}

// vectorToBytes encodes float32 values as little-endian bytes (FT FLOAT32 layout).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector decodes a FLOAT32 blob.
func bytesToVector(s string) ([]float32, error) {
	if len(s)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob: len=%d (not multiple of 4)", len(s))
	}
	b := []byte(s)
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
