package util

// Roundup64 returns x rounded up to a multiple of align.
func Roundup64(x, align int64) int64 {
	if align <= 0 {
		return x
	}
	return (x + (align - 1)) / align * align
}
