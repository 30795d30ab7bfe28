package checksum

import "github.com/cespare/xxhash/v2"

type xxhash32 struct{}

func NewXXHash32() *xxhash32 {
	return &xxhash32{}
}

func (x *xxhash32) Calculate(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

func (x *xxhash32) Verify(data []byte, expected uint32) bool {
	return x.Calculate(data) == expected
}

func (x *xxhash32) Name() string {
	return string(XXHash32)
}
