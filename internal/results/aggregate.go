// Package results combines platform outcomes and answers status queries.
package results

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

// Composite is the response for one request published in parallel mode.
// Success means the request was processed; per-platform outcomes are in Results.
type Composite struct {
	Success   bool                                 `json:"success"`
	Results   map[models.Platform]models.JobResult `json:"results"`
	Succeeded int                                  `json:"succeeded"`
	Failed    int                                  `json:"failed"`
	// Superseded holds earlier results for a platform that reported more than once.
	Superseded []models.JobResult `json:"superseded,omitempty"`
}

var errNoResult = errors.New("no result reported")

// Aggregate keys results by platform. Every expected platform gets an entry,
// results for platforms outside expected are kept too, and a repeated
// platform moves its earlier result to Superseded.
func Aggregate(expected []models.Platform, results []models.JobResult) Composite {
	c := Composite{
		Success: true,
		Results: make(map[models.Platform]models.JobResult, len(expected)),
	}

	for _, r := range results {
		if prev, dup := c.Results[r.Platform]; dup {
			log.Warn().Str("platform", string(r.Platform)).Msg("Platform reported more than one result, keeping the latest")
			c.Superseded = append(c.Superseded, prev)
		}
		c.Results[r.Platform] = r
	}
	for _, p := range expected {
		if _, ok := c.Results[p]; !ok {
			c.Results[p] = models.Failed(p, "", errNoResult)
		}
	}

	for _, r := range c.Results {
		if r.Success {
			c.Succeeded++
		} else {
			c.Failed++
		}
	}
	return c
}
