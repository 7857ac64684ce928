// Package sensor reads the environmental sensors attached to the device.
//
// A Reader owns four sensor families and one indicator output:
//   - climate (DHT22): temperature and humidity from one physical read
//   - gas (MQ-2 behind an ADC): LPG, CO and smoke from one resistance read
//   - light (digital or analog level): compared against a configured threshold
//   - motion (PIR): digital read that also drives the indicator LED
//
// Reads are isolated per family. A failed climate read never prevents the
// gas, light or motion reads of the same cycle. A failed family produces
// absent samples that carry the cause; the previous value is never reused.
//
// The drivers themselves live in the hardware subpackage. This package only
// depends on the small interfaces in drivers.go so it can be tested without
// GPIO access.
package sensor
