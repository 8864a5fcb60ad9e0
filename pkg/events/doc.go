// Package events turns domain events published on NATS into notifications.
//
// Business services publish JSON payloads on subjects under a common prefix
// (default "clinic"):
//
//	clinic.results.uploaded            notifications.ResultReady
//	clinic.appointments.booked         notifications.Appointment
//	clinic.appointments.test_booked    notifications.Appointment
//	clinic.appointments.status_changed StatusChanged
//	clinic.appointments.reminder       notifications.Appointment
//	clinic.admin.message               AdminMessage
//	clinic.admin.broadcast             notifications.Message
//
// A Subscriber decodes each payload and calls the matching Sink method.
// Payloads that fail to decode or miss required fields are logged and
// dropped. Subscriptions join a queue group so a replicated deployment
// handles each event once.
package events
