// internal/github/contributions.go
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"

	"github-streak-manager/internal/model"
)

type contributionDay struct {
	Date              string
	ContributionCount int
}

type contributionCalendarQuery struct {
	Viewer struct {
		ContributionsCollection struct {
			ContributionCalendar struct {
				TotalContributions int
				Weeks              []struct {
					ContributionDays []contributionDay
				}
			}
		} `graphql:"contributionsCollection(from: $from, to: $to)"`
	}
}

// GetContributionCalendar returns the per-day contribution counts of the token's user between
// from and to, as GitHub renders them on the profile calendar. GitHub rejects spans longer
// than one year.
func (c *Client) GetContributionCalendar(ctx context.Context, from, to time.Time) ([]model.DayCount, error) {
	var q contributionCalendarQuery
	vars := map[string]interface{}{
		"from": githubv4.DateTime{Time: from},
		"to":   githubv4.DateTime{Time: to},
	}

	c.logger.Debug("Querying contribution calendar", "from", from, "to", to)
	if err := c.v4.Query(ctx, &q, vars); err != nil {
		return nil, fmt.Errorf("failed to query contribution calendar: %w", err)
	}

	var days []model.DayCount
	for _, week := range q.Viewer.ContributionsCollection.ContributionCalendar.Weeks {
		for _, d := range week.ContributionDays {
			days = append(days, model.DayCount{Date: d.Date, Count: d.ContributionCount})
		}
	}
	return days, nil
}
