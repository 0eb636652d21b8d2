package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePriceMetric records one slot's commodity price.
//
// Tags the account and commodity; the 30-minute slot label rides along as
// a field so dashboards can verify slot coverage.
func (c *Client) WritePriceMetric(account string, commodity string, slot string, price float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"commodity_prices",
		map[string]string{
			"account":   account,
			"commodity": commodity,
		},
		map[string]interface{}{
			"price": price,
			"slot":  slot,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteTaskMetric records one pilot run: how long it took and what it
// ended as.
func (c *Client) WriteTaskMetric(account string, task string, status string, duration time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"task_runs",
		map[string]string{
			"account": account,
			"task":    task,
			"status":  status,
		},
		map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteSpendMetric records money leaving the account: purchases, repairs,
// ransoms, campaign renewals.
func (c *Client) WriteSpendMetric(account string, category string, amount float64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"spend",
		map[string]string{
			"account":  account,
			"category": category,
		},
		map[string]interface{}{
			"amount": amount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point for measurements the helpers do not
// cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
