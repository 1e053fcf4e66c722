package event

import (
	"time"

	"github.com/simpleiot/assettracker/data"
)

// AppStart is published once the orchestration module is running.
type AppStart struct{ appEvent }

// AppDataGet starts a sampling cycle for the listed kinds. Timeout is the
// deadline the aggregation module waits before publishing what it has.
type AppDataGet struct {
	appEvent
	Kinds   []data.Kind
	Timeout time.Duration
}

// Has reports whether k was requested.
func (e AppDataGet) Has(k data.Kind) bool {
	for _, r := range e.Kinds {
		if r == k {
			return true
		}
	}
	return false
}

// AppDataGetAll is the periodic sample trigger.
type AppDataGetAll struct{ appEvent }

// AppConfigGet asks for the cloud side configuration.
type AppConfigGet struct{ appEvent }

// AppConfigSend reports the device configuration to the cloud.
type AppConfigSend struct{ appEvent }

// Kind of event
func (AppStart) Kind() string { return "start" }

// Kind of event
func (AppDataGet) Kind() string { return "data_get" }

// Kind of event
func (AppDataGetAll) Kind() string { return "data_get_all" }

// Kind of event
func (AppConfigGet) Kind() string { return "config_get" }

// Kind of event
func (AppConfigSend) Kind() string { return "config_send" }

// DataReady closes a sampling cycle.
type DataReady struct{ dataEvent }

// DataSend carries an encoded single entry payload for the state endpoint.
type DataSend struct {
	dataEvent
	Handle  data.Handle
	Payload []byte
}

// DataSendBatch carries an encoded batch payload.
type DataSendBatch struct {
	dataEvent
	Handle  data.Handle
	Payload []byte
}

// DataUISend carries an encoded button press.
type DataUISend struct {
	dataEvent
	Handle  data.Handle
	Payload []byte
}

// DataUIReady tells the aggregation module a button press was buffered.
type DataUIReady struct{ dataEvent }

// DataConfigInit distributes the configuration loaded at boot.
type DataConfigInit struct {
	dataEvent
	Config data.Config
}

// DataConfigReady distributes a changed configuration.
type DataConfigReady struct {
	dataEvent
	Config data.Config
}

// DataConfigSend carries the encoded configuration report.
type DataConfigSend struct {
	dataEvent
	Handle  data.Handle
	Payload []byte
}

// DataConfigGet requests the cloud state document.
type DataConfigGet struct{ dataEvent }

// DataDateTimeObtained is published when the time source becomes valid.
type DataDateTimeObtained struct{ dataEvent }

// Kind of event
func (DataReady) Kind() string { return "data_ready" }

// Kind of event
func (DataSend) Kind() string { return "data_send" }

// Kind of event
func (DataSendBatch) Kind() string { return "data_send_batch" }

// Kind of event
func (DataUISend) Kind() string { return "ui_data_send" }

// Kind of event
func (DataUIReady) Kind() string { return "ui_data_ready" }

// Kind of event
func (DataConfigInit) Kind() string { return "config_init" }

// Kind of event
func (DataConfigReady) Kind() string { return "config_ready" }

// Kind of event
func (DataConfigSend) Kind() string { return "config_send" }

// Kind of event
func (DataConfigGet) Kind() string { return "config_get" }

// Kind of event
func (DataDateTimeObtained) Kind() string { return "date_time_obtained" }

// CloudConnecting is published when the transport starts a connection.
type CloudConnecting struct{ cloudEvent }

// CloudConnected is published when the transport reports a connection.
type CloudConnected struct{ cloudEvent }

// CloudDisconnected is published when the transport drops.
type CloudDisconnected struct{ cloudEvent }

// CloudConnectionTimeout fires when a connect attempt was not confirmed in
// time.
type CloudConnectionTimeout struct{ cloudEvent }

// CloudConfigReceived carries a configuration decoded from the cloud.
type CloudConfigReceived struct {
	cloudEvent
	Config data.Config
}

// CloudFotaDone signals a downloaded firmware image waiting for reboot.
type CloudFotaDone struct {
	cloudEvent
	Version string
}

// CloudDataAck releases a pending send handle.
type CloudDataAck struct {
	cloudEvent
	Handle data.Handle
}

// Kind of event
func (CloudConnecting) Kind() string { return "connecting" }

// Kind of event
func (CloudConnected) Kind() string { return "connected" }

// Kind of event
func (CloudDisconnected) Kind() string { return "disconnected" }

// Kind of event
func (CloudConnectionTimeout) Kind() string { return "connection_timeout" }

// Kind of event
func (CloudConfigReceived) Kind() string { return "config_received" }

// Kind of event
func (CloudFotaDone) Kind() string { return "fota_done" }

// Kind of event
func (CloudDataAck) Kind() string { return "data_ack" }

// GPSDataReady carries a position fix.
type GPSDataReady struct {
	gpsEvent
	Fix data.GPS
}

// GPSTimeout is published when a search ended without a fix.
type GPSTimeout struct{ gpsEvent }

// GPSActive is published when a search starts.
type GPSActive struct{ gpsEvent }

// GPSInactive is published when a search ends.
type GPSInactive struct{ gpsEvent }

// GPSAgpsNeeded asks the cloud for assistance data.
type GPSAgpsNeeded struct {
	gpsEvent
	Request data.AGPSRequest
}

// Kind of event
func (GPSDataReady) Kind() string { return "data_ready" }

// Kind of event
func (GPSTimeout) Kind() string { return "timeout" }

// Kind of event
func (GPSActive) Kind() string { return "active" }

// Kind of event
func (GPSInactive) Kind() string { return "inactive" }

// Kind of event
func (GPSAgpsNeeded) Kind() string { return "agps_needed" }

// ModemLteConnecting is published when LTE attach starts.
type ModemLteConnecting struct{ modemEvent }

// ModemLteConnected is published on home or roaming registration.
type ModemLteConnected struct{ modemEvent }

// ModemLteDisconnected is published when registration is lost.
type ModemLteDisconnected struct{ modemEvent }

// ModemCellUpdate carries the serving cell.
type ModemCellUpdate struct {
	modemEvent
	Cell data.Cell
}

// ModemDataReady carries a modem sample.
type ModemDataReady struct {
	modemEvent
	Modem data.Modem
}

// ModemBatteryReady carries a battery sample.
type ModemBatteryReady struct {
	modemEvent
	Battery data.Battery
}

// Kind of event
func (ModemLteConnecting) Kind() string { return "lte_connecting" }

// Kind of event
func (ModemLteConnected) Kind() string { return "lte_connected" }

// Kind of event
func (ModemLteDisconnected) Kind() string { return "lte_disconnected" }

// Kind of event
func (ModemCellUpdate) Kind() string { return "cell_update" }

// Kind of event
func (ModemDataReady) Kind() string { return "data_ready" }

// Kind of event
func (ModemBatteryReady) Kind() string { return "battery_ready" }

// SensorMovementReady carries an accelerometer trigger.
type SensorMovementReady struct {
	sensorEvent
	Accel data.Accel
}

// SensorEnvReady carries an environmental sample.
type SensorEnvReady struct {
	sensorEvent
	Env data.Env
}

// SensorEnvNotSupported answers an environmental request on hardware with no
// such sensor.
type SensorEnvNotSupported struct{ sensorEvent }

// Kind of event
func (SensorMovementReady) Kind() string { return "movement_ready" }

// Kind of event
func (SensorEnvReady) Kind() string { return "env_ready" }

// Kind of event
func (SensorEnvNotSupported) Kind() string { return "env_not_supported" }

// UIButtonReady carries a button press.
type UIButtonReady struct {
	uiEvent
	Button data.UI
}

// Kind of event
func (UIButtonReady) Kind() string { return "button_ready" }

// UtilShutdownRequest asks every module to prepare for reboot.
type UtilShutdownRequest struct {
	utilEvent
	Reason string
}

// Kind of event
func (UtilShutdownRequest) Kind() string { return "shutdown_request" }
