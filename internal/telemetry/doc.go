// Package telemetry assembles sensor samples into the message published
// on every cycle and decides whether that message may be sent.
//
// Wire format (compact, keys sorted):
//
//	{"data":{"co":0.0012,"humidity":40.2,"light":false,"lpg":null,
//	  "motion":true,"smoke":null,"temp":21.34999},
//	 "device_id":"b8:27:eb:00:00:01","ts":1700000000.25}
//
// Values are published exactly as read. Rounding for display is left to
// the consumers.
package telemetry
