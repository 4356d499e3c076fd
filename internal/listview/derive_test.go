package listview

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID       int64
	Name     string
	Code     string
	Phone    string
	Status   string
	Amount   float64
	Created  time.Time
	NoCreate bool
}

func (r row) Key() int64 { return r.ID }

var rowSchema = Schema[row]{
	Filters: map[string]func(row) string{
		"status": func(r row) string { return r.Status },
	},
	Date: func(r row) (time.Time, bool) { return r.Created, !r.NoCreate },
	Search: []func(row) string{
		func(r row) string { return r.Name },
		func(r row) string { return r.Code },
		func(r row) string { return r.Phone },
		func(r row) string { return IDString(r.ID) },
	},
	Sorts: map[string]Compare[row]{
		"name":    ByString(func(r row) string { return r.Name }),
		"amount":  ByNumber(func(r row) float64 { return r.Amount }),
		"created": ByTime(func(r row) time.Time { return r.Created }),
	},
}

var base = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func makeRows(n int) []row {
	statuses := []string{"pending", "completed", "cancelled"}
	rows := make([]row, n)
	for i := range rows {
		rows[i] = row{
			ID:      int64(i + 1),
			Name:    fmt.Sprintf("Customer %02d", i+1),
			Code:    fmt.Sprintf("ORD-%03d", i+1),
			Phone:   fmt.Sprintf("0901%06d", i+1),
			Status:  statuses[i%len(statuses)],
			Amount:  float64((i % 4) * 100),
			Created: base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	return rows
}

func keys(rows []row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestDerive_Scenario23Orders(t *testing.T) {
	rows := makeRows(23)
	p := Params{Filters: map[string]string{"status": FilterAll}, Page: 3, PageSize: 10}

	view := Derive(rows, p, rowSchema)

	assert.Equal(t, 23, view.TotalCount)
	assert.Equal(t, 3, view.TotalPages)
	assert.Equal(t, 3, view.Page)
	assert.Equal(t, []int64{21, 22, 23}, keys(view.Items))
}

func TestDerive_PaginationBounds(t *testing.T) {
	for _, n := range []int{0, 1, 9, 10, 11, 25, 100} {
		for _, size := range []int{1, 3, 10, 50} {
			t.Run(fmt.Sprintf("n=%d size=%d", n, size), func(t *testing.T) {
				rows := makeRows(n)
				wantPages := (n + size - 1) / size
				if wantPages == 0 {
					wantPages = 1
				}

				seen := 0
				for page := 1; page <= wantPages; page++ {
					view := Derive(rows, Params{Page: page, PageSize: size}, rowSchema)
					require.Equal(t, wantPages, view.TotalPages)
					require.Equal(t, n, view.TotalCount)
					wantLen := min(size, n-(page-1)*size)
					require.Len(t, view.Items, wantLen)
					seen += len(view.Items)
				}
				assert.Equal(t, n, seen)
			})
		}
	}
}

func TestDerive_EmptyCollectionHasOnePage(t *testing.T) {
	view := Derive[row](nil, Params{Page: 4, PageSize: 10}, rowSchema)
	assert.Empty(t, view.Items)
	assert.Equal(t, 0, view.TotalCount)
	assert.Equal(t, 1, view.TotalPages)
	assert.Equal(t, 1, view.Page)
}

func TestDerive_PageBeyondLastIsClamped(t *testing.T) {
	view := Derive(makeRows(12), Params{Page: 9, PageSize: 5}, rowSchema)
	assert.Equal(t, 3, view.Page)
	assert.Equal(t, []int64{11, 12}, keys(view.Items))
}

func TestDerive_NonPositivePageSizeUsesDefault(t *testing.T) {
	view := Derive(makeRows(15), Params{Page: 1, PageSize: 0}, rowSchema)
	assert.Equal(t, DefaultPageSize, view.PageSize)
	assert.Len(t, view.Items, DefaultPageSize)
}

func TestDerive_IsPure(t *testing.T) {
	rows := makeRows(30)
	snapshot := append([]row(nil), rows...)
	p := Params{
		Search:   "customer 1",
		Filters:  map[string]string{"status": "pending"},
		SortKey:  "amount",
		SortDir:  Desc,
		Page:     1,
		PageSize: 4,
	}

	first := Derive(rows, p, rowSchema)
	second := Derive(rows, p, rowSchema)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, rows, "input must not be reordered")
}

func TestDerive_StatusFilter(t *testing.T) {
	rows := makeRows(9)

	t.Run("case-insensitive match", func(t *testing.T) {
		view := Derive(rows, Params{Filters: map[string]string{"status": "COMPLETED"}, PageSize: 50}, rowSchema)
		assert.Equal(t, []int64{2, 5, 8}, keys(view.Items))
	})

	t.Run("all is a no-op", func(t *testing.T) {
		view := Derive(rows, Params{Filters: map[string]string{"status": "All"}, PageSize: 50}, rowSchema)
		assert.Equal(t, 9, view.TotalCount)
	})

	t.Run("unknown filter is ignored", func(t *testing.T) {
		view := Derive(rows, Params{Filters: map[string]string{"center": "HN"}, PageSize: 50}, rowSchema)
		assert.Equal(t, 9, view.TotalCount)
	})

	t.Run("applying the same filter twice is idempotent", func(t *testing.T) {
		p := Params{PageSize: 50}.WithFilter("status", "pending")
		once := Derive(rows, p, rowSchema)
		twice := Derive(rows, p.WithFilter("status", "pending"), rowSchema)
		assert.Equal(t, once, twice)

		filtered := Match(rows, p, rowSchema)
		refiltered := Match(filtered, p, rowSchema)
		assert.Equal(t, filtered, refiltered)
	})
}

func TestDerive_DateRange(t *testing.T) {
	rows := []row{
		{ID: 1, Created: time.Date(2024, 3, 9, 23, 59, 59, 999e6, time.UTC)},
		{ID: 2, Created: time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)},
		{ID: 3, Created: time.Date(2024, 3, 12, 23, 59, 59, 999e6, time.UTC)},
		{ID: 4, Created: time.Date(2024, 3, 13, 0, 0, 0, 0, time.UTC)},
		{ID: 5, NoCreate: true},
		{ID: 6, Created: time.Date(2024, 3, 12, 23, 59, 59, 999_500_000, time.UTC)},
	}
	from := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 12, 8, 0, 0, 0, time.UTC)

	t.Run("inclusive day bounds", func(t *testing.T) {
		view := Derive(rows, Params{From: &from, To: &to, PageSize: 10}, rowSchema)
		assert.Equal(t, []int64{2, 3, 6}, keys(view.Items), "sub-millisecond end of day stays inside")
	})

	t.Run("only lower bound excludes missing timestamps", func(t *testing.T) {
		view := Derive(rows, Params{From: &from, PageSize: 10}, rowSchema)
		assert.Equal(t, []int64{2, 3, 4, 6}, keys(view.Items))
	})

	t.Run("no bounds keeps everything", func(t *testing.T) {
		view := Derive(rows, Params{PageSize: 10}, rowSchema)
		assert.Equal(t, 6, view.TotalCount)
	})
}

func TestDerive_SearchSubstringLaw(t *testing.T) {
	rows := makeRows(30)
	rows[4].Name = "Trần Thị BÌNH"

	for _, term := range []string{"", "customer", "ORD-01", "0901000007", "bình", "  17 ", "zzz", "2"} {
		t.Run(term, func(t *testing.T) {
			matched := Match(rows, Params{Search: term}, rowSchema)
			inSet := make(map[int64]bool, len(matched))
			for _, r := range matched {
				inSet[r.ID] = true
			}

			needle := strings.ToLower(strings.TrimSpace(term))
			for _, r := range rows {
				want := false
				for _, f := range rowSchema.Search {
					if strings.Contains(strings.ToLower(f(r)), needle) {
						want = true
					}
				}
				assert.Equal(t, want, inSet[r.ID], "row %d term %q", r.ID, term)
			}
		})
	}
}

func TestDerive_SortStability(t *testing.T) {
	rows := makeRows(12) // amounts cycle 0,100,200,300

	for _, dir := range []Direction{Asc, Desc} {
		t.Run(string(dir), func(t *testing.T) {
			sorted := Match(rows, Params{SortKey: "amount", SortDir: dir}, rowSchema)
			require.Len(t, sorted, 12)

			for i := 1; i < len(sorted); i++ {
				prev, cur := sorted[i-1], sorted[i]
				if dir == Asc {
					require.LessOrEqual(t, prev.Amount, cur.Amount)
				} else {
					require.GreaterOrEqual(t, prev.Amount, cur.Amount)
				}
				if prev.Amount == cur.Amount {
					assert.Less(t, prev.ID, cur.ID, "ties keep original order")
				}
			}
		})
	}
}

func TestDerive_SortKinds(t *testing.T) {
	rows := []row{
		{ID: 1, Name: "banana", Created: base.Add(2 * time.Hour)},
		{ID: 2, Name: "Apple", Created: base},
		{ID: 3, Name: "cherry", Created: base.Add(time.Hour)},
	}

	assert.Equal(t, []int64{2, 1, 3}, keys(Match(rows, Params{SortKey: "name"}, rowSchema)))
	assert.Equal(t, []int64{1, 3, 2}, keys(Match(rows, Params{SortKey: "created", SortDir: Desc}, rowSchema)))
	assert.Equal(t, []int64{1, 2, 3}, keys(Match(rows, Params{SortKey: "unknown"}, rowSchema)))
}
