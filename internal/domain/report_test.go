package domain

import (
	"math"
	"testing"
)

func TestPaginationOffset(t *testing.T) {
	tests := []struct {
		name string
		page Pagination
		want int
	}{
		{name: "first page", page: Pagination{Page: 1, Limit: 20}, want: 0},
		{name: "zero page", page: Pagination{Page: 0, Limit: 20}, want: 0},
		{name: "third page", page: Pagination{Page: 3, Limit: 20}, want: 40},
		{name: "zero limit", page: Pagination{Page: 5, Limit: 0}, want: 0},
		{name: "saturates instead of wrapping", page: Pagination{Page: math.MaxInt/20 + 2, Limit: 20}, want: math.MaxInt},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.page.Offset(); got != tt.want {
				t.Fatalf("Offset() = %d, want %d", got, tt.want)
			}
		})
	}
}
