package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeField(t *testing.T) {
	assert.Equal(t, "123 Main St", NormalizeField("  123   Main\tSt  "))
	assert.Equal(t, "", NormalizeField("   "))
	assert.Equal(t, "Austin", NormalizeField("Austin"))
}

func TestFullAddress(t *testing.T) {
	got := FullAddress(" 123  Main St ", "Austin", "tx", "78701")
	assert.Equal(t, "123 Main St, Austin, TX, 78701", got)

	// semantically identical inputs must map to the same key
	a := FullAddress("123 Main St", "Austin", "TX", "78701")
	b := FullAddress("  123   Main St", " Austin ", "tx", " 78701")
	assert.Equal(t, a, b)
}

func TestRentEstimateKey(t *testing.T) {
	got := RentEstimateKey("123 Main St", "Austin", "tx", "Single Family", 3, 2.5, 1850)
	assert.Equal(t, "123 Main St-Austin-TX-Single Family-3-2.5-1850", got)

	// zip is not part of the estimate key
	assert.NotContains(t, got, "78701")

	// fractional bathrooms keep their precision, whole numbers stay bare
	whole := RentEstimateKey("1 A", "B", "C", "Condo", 2, 1, 900)
	assert.Equal(t, "1 A-B-C-Condo-2-1-900", whole)
}
