package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "repostreach/pkg/errors"
	"repostreach/pkg/models"
)

func TestReadPostIDs(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		column  string
		want    []string
		wantErr errs.ErrorType
	}{
		{
			name:   "single column",
			input:  "post_id\n1\n2\n3\n",
			column: "post_id",
			want:   []string{"1", "2", "3"},
		},
		{
			name:   "leading index column and duplicates",
			input:  ",tweet_id,text\n0,10,hi\n1,11,\"a, b\"\n2,10,again\n",
			column: "tweet_id",
			want:   []string{"10", "11", "10"},
		},
		{
			name:   "blank cells skipped",
			input:  "post_id\n1\n\n 2 \n",
			column: "post_id",
			want:   []string{"1", "2"},
		},
		{
			name:   "byte order mark",
			input:  "\ufeffpost_id\n7\n",
			column: "post_id",
			want:   []string{"7"},
		},
		{
			name:    "missing column",
			input:   "id\n1\n",
			column:  "post_id",
			wantErr: errs.ErrorTypeInput,
		},
		{
			name:    "empty file",
			input:   "",
			column:  "post_id",
			wantErr: errs.ErrorTypeInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, err := readPostIDs(strings.NewReader(tt.input), tt.column)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, errs.TypeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestReadPostIDsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "posts.csv")
	require.NoError(t, os.WriteFile(path, []byte("post_id\nP1\nP2\n"), 0644))

	ids, err := ReadPostIDs(path, "post_id")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, ids)

	_, err = ReadPostIDs(filepath.Join(t.TempDir(), "missing.csv"), "post_id")
	assert.Error(t, err)
}

func exposure(v int64) *int64 { return &v }

func TestManagerLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "reach.csv")
	m, err := NewManager(path)
	require.NoError(t, err)
	assert.False(t, m.Exists())

	require.NoError(t, m.Init())
	assert.True(t, m.Exists())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "post_id,reposter_ids,reposter_count,exposure\n", string(data))

	collected := models.PostTable{
		models.NewPostRecord("P1", []string{"A", "B"}),
		models.NewPostRecord("P2", nil),
	}
	require.NoError(t, m.Append(collected))

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t,
		"post_id,reposter_ids,reposter_count,exposure\n"+
			"P1,\"[\"\"A\"\",\"\"B\"\"]\",2,not_calculated\n"+
			"P2,[],0,not_calculated\n",
		string(data))

	aggregated := models.PostTable{collected[0], collected[1]}
	aggregated[0].Exposure = exposure(12)
	aggregated[1].Exposure = exposure(0)
	require.NoError(t, m.Rewrite(aggregated))

	table, err := ReadResults(path)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "P1", table[0].PostID)
	assert.Equal(t, []string{"A", "B"}, table[0].ReposterIDs)
	assert.Equal(t, 2, table[0].ReposterCount)
	assert.Equal(t, int64(12), *table[0].Exposure)
	assert.Equal(t, []string{}, table[1].ReposterIDs)
	assert.Equal(t, int64(0), *table[1].Exposure)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestAppendRequiresExistingFile(t *testing.T) {
	m, err := NewManager(filepath.Join(t.TempDir(), "reach.csv"))
	require.NoError(t, err)

	assert.Error(t, m.Append(models.PostTable{models.NewPostRecord("P1", nil)}))
}

func TestReadResultsPlaceholder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reach.csv")
	m, err := NewManager(path)
	require.NoError(t, err)
	require.NoError(t, m.Rewrite(models.PostTable{models.NewPostRecord("P1", []string{"A"})}))

	table, err := ReadResults(path)
	require.NoError(t, err)
	assert.Nil(t, table[0].Exposure)
}

func TestReadResultsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reach.csv")
	require.NoError(t, os.WriteFile(path, []byte("post_id,reposter_ids,reposter_count,exposure\nP1,[],x,0\n"), 0644))

	_, err := ReadResults(path)
	assert.Error(t, err)
}
