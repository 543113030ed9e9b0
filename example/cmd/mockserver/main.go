// Standalone mock leader for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	SP_API_TOKEN=demo-token go run ./cmd/spjobs serve -c example/config.yaml
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"

	"github.com/jpalmerr/spjobs/internal/fakesp"
)

func main() {
	fmt.Println("Mock SP leader starting on :9999")
	fmt.Println("Jobs stay pending for 1-8 polls; zones starting with \"refused\" fail")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	fake := fakesp.New(
		fakesp.WithCollection("/api/sp/tms_filter_list_requests/"),
		fakesp.WithToken(fakesp.DefaultTokenHeader, "demo-token"),
		fakesp.WithScript(func(c fakesp.Create) []fakesp.Step {
			zone, _ := c.Details["zone"].(string)
			slog.Info("job created", "id", c.ID, "type", c.RequestType, "zone", zone)

			steps := make([]fakesp.Step, 1+rand.Intn(8))
			for i := range steps {
				steps[i] = fakesp.Pending()
			}
			if strings.HasPrefix(zone, "refused") {
				return append(steps, fakesp.Failed("zone transfer refused"))
			}
			return append(steps, fakesp.Done([]string{"www." + zone, "mail." + zone}))
		}),
	)

	if err := http.ListenAndServe(":9999", fake); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
