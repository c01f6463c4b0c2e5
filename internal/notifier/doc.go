// Package notifier delivers "reminder fired" events to the end user.
//
// Delivery is synchronous from the scheduler's point of view: the scheduler
// needs the success/failure result to decide whether the send counter
// advances. The service bounds each attempt with a timeout and a global rate
// limiter so one stuck chat cannot stall other reminders' timers.
//
// Quiet hours are a delivery policy, not scheduler state: a delivery inside
// the window returns *QuietHoursError carrying the window-open instant.
package notifier
