// Package delivery implements the gRPC transport of the alarm delivery core.
//
// The service klaxon.v1.AlarmDelivery is registered from a hand-written
// descriptor whose messages are google.protobuf.Struct values, so no generated
// code is needed. The codec in this package converts those structs to and from
// domain types; undecodable fire events are reported to the scheduler and
// rejected with InvalidArgument.
package delivery
