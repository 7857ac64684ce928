// Package hardware provides the Raspberry Pi drivers behind the sensor
// package: periph.io GPIO pins for the light sensor, PIR and indicator LED,
// an ADS1115 ADC for the MQ-2 gas sensor, and the kernel dht11 IIO driver
// for the DHT22.
//
// Wiring defaults (BCM numbering):
//
//	DHT22 data   GPIO18 (dtoverlay=dht11,gpiopin=18)
//	Light DO     GPIO24
//	PIR OUT      GPIO23
//	LED          GPIO25
//	ADS1115      I²C-1, address 0x48, MQ-2 AO on A0
package hardware
