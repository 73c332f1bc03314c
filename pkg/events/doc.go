// Package events distributes configuration change notifications to
// in-process subscribers, filtered by category (document, template,
// service).
package events
