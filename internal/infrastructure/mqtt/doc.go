// Package mqtt is the bridge's broker connection, a wrapper around the
// Eclipse paho client.
//
// The ISM7 gateway side publishes raw telegram batches on
// <root>/raw/<device>/rx and consumes write batches from
// <root>/raw/<device>/tx. The bridge sits between those topics and the
// typed parameter topics read by Home Assistant and other consumers.
//
// The client keeps a retained status document on <root>/system/status,
// with the broker posting "offline" as last will, and restores its
// subscriptions after every reconnect. Traffic counters are available
// through Stats.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe("ism7/raw/+/rx", 1, handleBatch)
package mqtt
