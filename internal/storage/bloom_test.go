package storage

import (
	"fmt"
	"testing"

	"github.com/TFMV/meshbuf/internal/hash"
	"github.com/stretchr/testify/assert"
)

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	f := NewBloomFilterFor(1000)
	for i := 0; i < 1000; i++ {
		f.Add([]byte(fmt.Sprint(i)))
	}
	for i := 0; i < 1000; i++ {
		assert.True(t, f.Contains([]byte(fmt.Sprint(i))))
	}

	falsePositives := 0
	for i := 1000; i < 11000; i++ {
		if f.Contains([]byte(fmt.Sprint(i))) {
			falsePositives++
		}
	}
	assert.Less(t, falsePositives, 500, "false positive rate well under five percent")
}

func TestBloomFilterTestAndAdd(t *testing.T) {
	f := NewBloomFilter(0, 0)
	d := hash.Bytes([]byte("mesh"))
	assert.False(t, f.TestAndAdd(d[:]))
	assert.True(t, f.TestAndAdd(d[:]))
}
