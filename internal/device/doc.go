// Package device provides in-process stand-ins for the platform resources
// used while an alarm rings: the alarm stream mixer, the vibration actuator
// and the wake lock.
package device
