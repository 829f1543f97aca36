// Package transport connects the control loop to a robot: an MQTT odometry
// subscriber as pose source, and MQTT or SocketCAN actuator sinks.
package transport
