// Package homeassistant publishes MQTT discovery documents so that Home
// Assistant creates one entity per exposed controller parameter.
//
// Each parameter becomes a sensor, binary_sensor, number, switch, select or
// text entity depending on its shape and writability. Documents are sent to
// "<prefix>/<component>/<unique id>/config" and point at the bridge's own
// state and set topics.
package homeassistant
