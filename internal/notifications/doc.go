// Package notifications delivers push notifications for pipeline milestones
// through ntfy. When no topic is configured every call is a silent noop, so
// callers never need to guard notification sends.
package notifications
