// Package influxdb mirrors published telemetry into InfluxDB v2.
//
// Every message that the publish loop delivered to the MQTT broker is also
// written as one point of the "environment" measurement, tagged with the
// device id. Writes go through the client's non-blocking, batching write API;
// the mirror never delays the publish loop and never holds messages that
// failed to publish.
//
// Usage:
//
//	mirror, err := influxdb.Connect(ctx, cfg.InfluxDB, logger)
//	if err != nil {
//	    return err
//	}
//	defer mirror.Close()
//
//	mirror.Mirror(msg)
package influxdb
