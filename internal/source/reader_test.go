package source

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, input string, readSize int) []string {
	t.Helper()
	rr := NewRecordReader(strings.NewReader(input), readSize)
	var out []string
	for {
		rec, err := rr.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRecordReaderSplitsRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "plain lines",
			input: "a,b\n1,2\n3,4\n",
			want:  []string{"a,b", "1,2", "3,4"},
		},
		{
			name:  "no trailing newline",
			input: "a,b\n1,2",
			want:  []string{"a,b", "1,2"},
		},
		{
			name:  "crlf terminators",
			input: "a,b\r\n1,2\r\n",
			want:  []string{"a,b", "1,2"},
		},
		{
			name:  "quoted newline stays in record",
			input: "name,description\nLamp,\"bright\nand warm\"\nDesk,oak\n",
			want:  []string{"name,description", "Lamp,\"bright\nand warm\"", "Desk,oak"},
		},
		{
			name:  "escaped quotes inside quoted field",
			input: "a\n\"say \"\"hi\"\"\nthere\"\nb\n",
			want:  []string{"a", "\"say \"\"hi\"\"\nthere\"", "b"},
		},
		{
			name:  "inch mark in unquoted cell does not open a quote",
			input: "name,size\nMonitor 27\",large\nCable,short\n",
			want:  []string{"name,size", "Monitor 27\",large", "Cable,short"},
		},
		{
			name:  "blank lines are returned as empty records",
			input: "a\n\nb\n",
			want:  []string{"a", "", "b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, size := range []int{1, 3, 7, 0} {
				assert.Equal(t, tt.want, readAll(t, tt.input, size), "read size %d", size)
			}
		})
	}
}

func TestRecordReaderRecoversFromUnclosedQuote(t *testing.T) {
	input := "name,sku\n\"Bad row,SKU-1\nGood,SKU-2\nGood,SKU-3\nGood,SKU-4\n"
	want := []string{"name,sku", "\"Bad row,SKU-1", "Good,SKU-2", "Good,SKU-3", "Good,SKU-4"}
	for _, size := range []int{1, 3, 8, 0} {
		assert.Equal(t, want, readAll(t, input, size), "read size %d", size)
	}
}

func TestRecordReaderBoundsQuotedSpan(t *testing.T) {
	input := "name,sku\n\"Bad row,SKU-1\nGood,SKU-2\nTent,\"large, green\"\nGood,SKU-4\n"
	want := []string{"name,sku", "\"Bad row,SKU-1", "Good,SKU-2", "Tent,\"large, green\"", "Good,SKU-4"}

	for _, size := range []int{1, 5, 0} {
		rr := NewRecordReader(strings.NewReader(input), size)
		rr.SetMaxQuotedSpan(8)
		var got []string
		for {
			rec, err := rr.Next()
			if errors.Is(err, io.EOF) {
				break
			}
			require.NoError(t, err)
			got = append(got, rec)
		}
		assert.Equal(t, want, got, "read size %d", size)
	}

	// a multi-line cell within the limit is kept whole
	rr := NewRecordReader(strings.NewReader("a,\"x\ny\"\nb\n"), 2)
	rr.SetMaxQuotedSpan(8)
	rec, err := rr.Next()
	require.NoError(t, err)
	assert.Equal(t, "a,\"x\ny\"", rec)
}

func TestRecordReaderCountsBytes(t *testing.T) {
	input := "a,b\n1,2\n"
	rr := NewRecordReader(strings.NewReader(input), 2)
	for {
		if _, err := rr.Next(); err != nil {
			break
		}
	}
	assert.Equal(t, int64(len(input)), rr.BytesRead())
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestRecordReaderPropagatesStreamErrors(t *testing.T) {
	rr := NewRecordReader(failingReader{}, 8)
	_, err := rr.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestSplitFields(t *testing.T) {
	assert.Equal(t, []string{"Lamp", "bright\nand warm", "10"}, SplitFields("Lamp,\"bright\nand warm\",10"))
	assert.Equal(t, []string{"a", "", "c"}, SplitFields("a,,c"))
	assert.Equal(t, []string{`Monitor 27"`, "large"}, SplitFields(`Monitor 27",large`))
}

func TestNewHeaderIndex(t *testing.T) {
	h := NewHeaderIndex([]string{"\uFEFFname", " sku ", "\"price\"", "name", ""})
	assert.Equal(t, 0, h["name"])
	assert.Equal(t, 1, h["sku"])
	assert.Equal(t, 2, h["price"])
	assert.Len(t, h, 3)

	fields := []string{"Lamp", "SKU-1"}
	assert.Equal(t, "SKU-1", h.Cell(fields, "sku"))
	assert.Equal(t, "", h.Cell(fields, "price"))
	assert.Equal(t, "", h.Cell(fields, "missing"))
	assert.True(t, h.Has("price"))
	assert.False(t, h.Has("missing"))
}
