// Package influxdb records device discoveries as time-series points.
//
// It is optional and disabled by default. When enabled, every device saved
// by discover produces one point:
//
//	device_discovery,category=cp,source=web_device_info,uid=cp-001 seen=1i
//
// Writes go through the non-blocking batched write API of
// influxdb-client-go; Close flushes before the process exits. Asynchronous
// write failures are reported through SetOnError.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDiscovery("cp-001", "cp", "web_device_info")
package influxdb
