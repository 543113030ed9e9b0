package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"strings"

	"github.com/jpalmerr/spjobs/internal/fakesp"
)

// StartMockLeader serves a fake job-request API on addr. Jobs stay pending
// for a few polls, then complete with a filter list derived from the zone.
// Zones starting with "refused" fail instead.
func StartMockLeader(addr string) {
	fake := fakesp.New(
		fakesp.WithCollection("/api/sp/tms_filter_list_requests/"),
		fakesp.WithScript(mockScript),
	)
	if err := http.ListenAndServe(addr, fake); err != nil {
		slog.Error("mock leader error", "error", err)
	}
}

func mockScript(c fakesp.Create) []fakesp.Step {
	zone, _ := c.Details["zone"].(string)

	steps := make([]fakesp.Step, 1+rand.Intn(5))
	for i := range steps {
		steps[i] = fakesp.Pending()
	}
	if strings.HasPrefix(zone, "refused") {
		return append(steps, fakesp.Failed("zone transfer refused by "+zoneServer(c)))
	}
	return append(steps, fakesp.Done([]string{"www." + zone, "mail." + zone, "api." + zone}))
}

func zoneServer(c fakesp.Create) string {
	server, _ := c.Details["server"].(string)
	return server
}
