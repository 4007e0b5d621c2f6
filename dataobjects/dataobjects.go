// Package dataobjects contains the entities of the disruption pipeline and
// their persistence operations. All operations take a sqalx node and run
// inside a transaction of their own, so callers can compose them into larger
// atomic units through nested transactions.
package dataobjects

import (
	sq "github.com/Masterminds/squirrel"
)

var sdb sq.StatementBuilderType

func init() {
	sdb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}
