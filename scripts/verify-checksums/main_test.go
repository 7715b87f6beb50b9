package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/taskqueue/internal/checksum"
	"github.com/ashita-ai/taskqueue/internal/model"
)

func TestCheck(t *testing.T) {
	created := time.Unix(1700000000, 0).UTC()
	query := `{"a":1}`
	sum := checksum.FromQuery(query)
	good := model.Task{ID: 1, Query: query, ParameterChecksum: sum, Revision: checksum.Revision(created, sum), CreatedAt: created}
	assert.Empty(t, check(good))

	badSum := good
	badSum.ParameterChecksum = "deadbeef"
	assert.Contains(t, check(badSum), "parameter_checksum deadbeef")

	badRev := good
	badRev.Revision = "1_" + sum
	assert.Contains(t, check(badRev), "revision 1_")
}
