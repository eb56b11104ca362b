package cloudfiles

import (
	"context"
	"strconv"
	"unicode/utf8"
)

// ContainerLimit is the largest page the backend returns.
const ContainerLimit = 10000

// ListOptions narrow a listing. Prefix, Path and Delimiter only apply to
// object listings.
type ListOptions struct {
	Limit     int
	Marker    string
	EndMarker string
	Prefix    string
	Path      string
	Delimiter string
}

func (o ListOptions) apply(r *Request) {
	if o.Limit > 0 {
		r.SetQuery("limit", strconv.Itoa(clampLimit(o.Limit)))
	}
	if o.Marker != "" {
		r.SetQuery("marker", o.Marker)
	}
	if o.EndMarker != "" {
		r.SetQuery("end_marker", o.EndMarker)
	}
	if o.Prefix != "" {
		r.SetQuery("prefix", o.Prefix)
	}
	if o.Path != "" {
		r.SetQuery("path", o.Path)
	}
	if o.Delimiter != "" {
		_, size := utf8.DecodeRuneInString(o.Delimiter)
		r.SetQuery("delimiter", o.Delimiter[:size])
	}
}

// clampLimit maps limits outside [1, ContainerLimit] to ContainerLimit.
func clampLimit(limit int) int {
	if limit < 1 || limit > ContainerLimit {
		return ContainerLimit
	}
	return limit
}

// pageFunc fetches one page starting after marker and reports how many
// entries it returned and the name of the last one.
type pageFunc func(ctx context.Context, limit int, marker string) (count int, last string, err error)

// paginate follows marker cursors until a short page. It returns the number
// of round trips made. A failing page aborts the whole listing.
func paginate(ctx context.Context, limit int, marker string, page pageFunc) (int, error) {
	limit = clampLimit(limit)

	var requests int
	for {
		count, last, err := page(ctx, limit, marker)
		requests++

		switch {
		case err != nil:
			return requests, err
		case count < limit:
			return requests, nil
		case last == "" || last == marker:
			return requests, ErrProtocol.New("listing marker did not advance past %q", marker)
		}

		marker = last
	}
}
