// Package scheduler fires the automation pilots on their triggers: fixed
// intervals aligned to UTC midnight, or 30-minute price-slot boundaries
// plus a safety margin. Dispatches are isolated per task; failure
// handling, pause checks, and overlap guarding live in the pilot runner.
package scheduler
