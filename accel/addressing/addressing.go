// Package addressing maps loop indices onto the linear address spaces of the
// weight store, the feature store, the result store, and the activation
// staging memory.
//
// Every function here is pure. Together they define the bijection between
// the scheduler's iteration order and the externally visible data layout, so
// each formula is exact and covered exhaustively by tests.
package addressing

import (
	"errors"
	"fmt"
)

// Convolution layout.
const (
	ConvKernels       = 96
	ConvRowGroups     = 56
	ConvChunks        = 8
	ConvTaps          = 12
	ConvWeightWords   = ConvTaps + 1 // taps plus bias
	ConvPEs           = 12
	ConvWindows       = 7
	ConvFeatureWords  = ConvPEs * ConvWindows
	ConvRowsPerGroup  = 4
	ConvFeatureCols   = 56
	ConvFeatureRows   = 224
	ConvChannelStride = ConvFeatureCols * ConvFeatureRows
	ConvOutputPlane   = ConvRowGroups * ConvFeatureCols
)

// Dense matmul layout.
const (
	MatmulRowGroups     = 448
	MatmulRowsPerGroup  = 7
	MatmulL1Cols        = 384
	MatmulL2Cols        = 96
	MatmulL1WeightWords = 24
	MatmulL2WeightWords = 96
	MatmulFeatureWidth  = 24
	MatmulFeatureWords  = MatmulRowsPerGroup * MatmulFeatureWidth
	MatmulOutputPlane   = MatmulRowGroups * MatmulRowsPerGroup

	// W2Base separates the layer-2 weight region from the layer-1 region
	// inside the unified weight address space.
	W2Base = MatmulL1Cols * MatmulL1WeightWords
)

// OutputWords is the size of one compute-array result tuple.
const OutputWords = 7

// Sizes of each address space.
const (
	ConvWeightSpace    = ConvKernels * ConvWeightWords
	MatmulWeightSpace  = W2Base + MatmulL2Cols*MatmulL2WeightWords
	ConvFeatureSpace   = 3 * ConvChannelStride
	MatmulFeatureSpace = MatmulRowGroups * MatmulFeatureWords
	ResultSpace        = ConvKernels * ConvOutputPlane
	HiddenSpace        = MatmulL1Cols * OutputWords
)

// ErrOutOfRange is returned by the checked variants when an index exceeds
// its loop bound.
var ErrOutOfRange = errors.New("index out of range")

// ConvWeight returns the weight-store address of word `word` of kernel
// `kernel`. Word 12 is the bias.
func ConvWeight(kernel, word int) int {
	return kernel*ConvWeightWords + word
}

// ConvFeature returns the feature-store address of the feature word loaded
// as word `word` of the tile at (rowGroup, chunk).
func ConvFeature(rowGroup, chunk, word int) int {
	pe, window := ConvSlot(word)
	channel := pe >> 2
	row := rowGroup*ConvRowsPerGroup + pe%ConvRowsPerGroup

	return channel*ConvChannelStride + row*ConvFeatureCols +
		chunk*ConvWindows + window
}

// ConvSlot splits a feature word index into the processing element and the
// window position it is loaded into.
func ConvSlot(word int) (pe, window int) {
	return word / ConvWindows, word % ConvWindows
}

// ConvResult returns the result-store address of write-back word wb.
func ConvResult(kernel, rowGroup, chunk, wb int) int {
	return kernel*ConvOutputPlane + rowGroup*ConvFeatureCols +
		chunk*ConvWindows + wb
}

// MatmulL1Weight returns the address of word `word` of layer-1 column col.
func MatmulL1Weight(col, word int) int {
	return col*MatmulL1WeightWords + word
}

// MatmulL2Weight returns the address of word `word` of layer-2 column col.
func MatmulL2Weight(col, word int) int {
	return W2Base + col*MatmulL2WeightWords + word
}

// MatmulFeature returns the feature-store address of word `word` of the
// row-group tile.
func MatmulFeature(rowGroup, word int) int {
	row, k := MatmulSlot(word)

	return (rowGroup*MatmulRowsPerGroup+row)*MatmulFeatureWidth + k
}

// MatmulSlot splits a feature word index into tile row and reduction index.
func MatmulSlot(word int) (row, k int) {
	return word / MatmulFeatureWidth, word % MatmulFeatureWidth
}

// MatmulResult returns the result-store address of write-back word wb.
func MatmulResult(col2, rowGroup, wb int) int {
	return col2*MatmulOutputPlane + rowGroup*MatmulRowsPerGroup + wb
}

// HiddenAddress returns where layer-1 write-back word wb of column col1 lands
// in the activation staging memory.
func HiddenAddress(col1, wb int) int {
	return col1*OutputWords + wb
}

func check(name string, v, limit int) error {
	if v < 0 || v >= limit {
		return fmt.Errorf("%s=%d not in [0,%d): %w", name, v, limit, ErrOutOfRange)
	}

	return nil
}

func checkAll(checks ...error) error {
	return errors.Join(checks...)
}

// CheckedConvWeight validates the indices before computing ConvWeight.
func CheckedConvWeight(kernel, word int) (int, error) {
	err := checkAll(
		check("kernel", kernel, ConvKernels),
		check("word", word, ConvWeightWords),
	)
	if err != nil {
		return 0, err
	}

	return ConvWeight(kernel, word), nil
}

// CheckedConvFeature validates the indices before computing ConvFeature.
func CheckedConvFeature(rowGroup, chunk, word int) (int, error) {
	err := checkAll(
		check("row group", rowGroup, ConvRowGroups),
		check("chunk", chunk, ConvChunks),
		check("word", word, ConvFeatureWords),
	)
	if err != nil {
		return 0, err
	}

	return ConvFeature(rowGroup, chunk, word), nil
}

// CheckedConvResult validates the indices before computing ConvResult.
func CheckedConvResult(kernel, rowGroup, chunk, wb int) (int, error) {
	err := checkAll(
		check("kernel", kernel, ConvKernels),
		check("row group", rowGroup, ConvRowGroups),
		check("chunk", chunk, ConvChunks),
		check("wb", wb, OutputWords),
	)
	if err != nil {
		return 0, err
	}

	return ConvResult(kernel, rowGroup, chunk, wb), nil
}

// CheckedMatmulL1Weight validates the indices before computing
// MatmulL1Weight.
func CheckedMatmulL1Weight(col, word int) (int, error) {
	err := checkAll(
		check("col", col, MatmulL1Cols),
		check("word", word, MatmulL1WeightWords),
	)
	if err != nil {
		return 0, err
	}

	return MatmulL1Weight(col, word), nil
}

// CheckedMatmulL2Weight validates the indices before computing
// MatmulL2Weight.
func CheckedMatmulL2Weight(col, word int) (int, error) {
	err := checkAll(
		check("col", col, MatmulL2Cols),
		check("word", word, MatmulL2WeightWords),
	)
	if err != nil {
		return 0, err
	}

	return MatmulL2Weight(col, word), nil
}

// CheckedMatmulFeature validates the indices before computing MatmulFeature.
func CheckedMatmulFeature(rowGroup, word int) (int, error) {
	err := checkAll(
		check("row group", rowGroup, MatmulRowGroups),
		check("word", word, MatmulFeatureWords),
	)
	if err != nil {
		return 0, err
	}

	return MatmulFeature(rowGroup, word), nil
}

// CheckedMatmulResult validates the indices before computing MatmulResult.
func CheckedMatmulResult(col2, rowGroup, wb int) (int, error) {
	err := checkAll(
		check("col", col2, MatmulL2Cols),
		check("row group", rowGroup, MatmulRowGroups),
		check("wb", wb, OutputWords),
	)
	if err != nil {
		return 0, err
	}

	return MatmulResult(col2, rowGroup, wb), nil
}

// CheckedHiddenAddress validates the indices before computing HiddenAddress.
func CheckedHiddenAddress(col1, wb int) (int, error) {
	err := checkAll(
		check("col", col1, MatmulL1Cols),
		check("wb", wb, OutputWords),
	)
	if err != nil {
		return 0, err
	}

	return HiddenAddress(col1, wb), nil
}
