package schema

// Message ids and parameter tags are scoped per service. Every service
// reserves tag 0 for the result code and tag 1 for cancel.

// Property Information Service.
const (
	PISMsgGetDeviceInformation     uint16 = 0x0000
	PISMsgGetDeviceInformationResp uint16 = 0x0001
)

const (
	PISTagResultCode uint8 = iota
	PISTagCancel
	PISTagServiceList
	PISTagDeviceID
	PISTagDeviceUID
	PISTagDeviceCapability
	PISTagOriginalInfo
	PISTagExSensor
)

// Device capability bitmask.
const (
	CapabilityNone        uint8 = 0x01
	CapabilityGyroscope   uint8 = 0x02
	CapabilityAccelerator uint8 = 0x04
	CapabilityOrientation uint8 = 0x08
	CapabilityBattery     uint8 = 0x10
	CapabilityTemperature uint8 = 0x20
	CapabilityHumidity    uint8 = 0x40
)

// Operation Service. Device-originated only.
const (
	OSMsgNotifyOperation uint16 = 0x0000
)

const (
	OSTagResultCode uint8 = iota
	OSTagCancel
	OSTagButtonID
)

// Sensor Information Service.
const (
	SISMsgGetSensorInfo           uint16 = 0x0000
	SISMsgGetSensorInfoResp       uint16 = 0x0001
	SISMsgSetNotifySensorInfo     uint16 = 0x0002
	SISMsgSetNotifySensorInfoResp uint16 = 0x0003
	SISMsgNotifySensorInfo        uint16 = 0x0004
)

const (
	SISTagResultCode uint8 = iota
	SISTagCancel
	SISTagSensorType
	SISTagStatus
	SISTagXValue
	SISTagYValue
	SISTagZValue
	SISTagXThreshold
	SISTagYThreshold
	SISTagZThreshold
	SISTagOriginalData
)

// Notification Service.
const (
	NSMsgConfirmNotifyCategory     uint16 = 0x0000
	NSMsgConfirmNotifyCategoryResp uint16 = 0x0001
	NSMsgNotifyInformation         uint16 = 0x0002
	NSMsgGetNotifyDetailData       uint16 = 0x0003
	NSMsgGetNotifyDetailDataResp   uint16 = 0x0004
	NSMsgNotifyGeneralInformation  uint16 = 0x0005
	NSMsgStartApplication          uint16 = 0x0006
	NSMsgStartApplicationResp      uint16 = 0x0007
)

const (
	NSTagResultCode uint8 = iota
	NSTagCancel
	NSTagGetStatus
	NSTagNotifyCategory
	NSTagNotifyCategoryID
	NSTagGetParameterID
	NSTagGetParameterLength
	NSTagParameterIDList
	NSTagUniqueID
	NSTagNotifyID
	NSTagNotificationOperation
	NSTagTitle
	NSTagText
	NSTagAppName
	NSTagAppNameLocal
	NSTagNotifyApp
	NSTagRumblingSetting
	NSTagVibrationPattern
	NSTagLEDPattern
	NSTagSender
	NSTagSenderAddress
	NSTagReceiveDate
	NSTagStartDate
	NSTagEndDate
	NSTagArea
	NSTagPerson
	NSTagMimeTypeForImage
	NSTagMimeTypeForMedia
	NSTagImage
	NSTagContents1
	NSTagContents2
	NSTagContents3
	NSTagContents4
	NSTagContents5
	NSTagContents6
	NSTagContents7
	NSTagContents8
	NSTagContents9
	NSTagContents10
	NSTagMedia
	NSTagPackage
	NSTagClass
	NSTagSharingInformation
	// NSTagInvalid marks "no detail fetch pending".
	NSTagInvalid
)

// Notification category bitmask.
const (
	CategoryNotNotify         uint16 = 0x0001
	CategoryAll               uint16 = 0x0002
	CategoryPhoneIncomingCall uint16 = 0x0004
	CategoryPhoneInCall       uint16 = 0x0008
	CategoryPhoneIdle         uint16 = 0x0010
	CategoryMail              uint16 = 0x0020
	CategorySchedule          uint16 = 0x0040
	CategoryGeneral           uint16 = 0x0080
	CategoryEtc               uint16 = 0x0100
)

// Setting Operation Service.
const (
	SOSMsgGetAppVersion                uint16 = 0x0000
	SOSMsgGetAppVersionResp            uint16 = 0x0001
	SOSMsgConfirmInstallApp            uint16 = 0x0002
	SOSMsgConfirmInstallAppResp        uint16 = 0x0003
	SOSMsgGetSettingInformation        uint16 = 0x0004
	SOSMsgGetSettingInformationResp    uint16 = 0x0005
	SOSMsgGetSettingName               uint16 = 0x0006
	SOSMsgGetSettingNameResp           uint16 = 0x0007
	SOSMsgSelectSettingInformation     uint16 = 0x0008
	SOSMsgSelectSettingInformationResp uint16 = 0x0009
)

const (
	SOSTagResultCode uint8 = iota
	SOSTagCancel
	SOSTagSettingNameType
	SOSTagAppName
	SOSTagFileVer
	SOSTagFileSize
	SOSTagInstallConfirmStatus
	SOSTagSettingInformationRequest
	SOSTagSettingInformationData
	SOSTagSettingNameData
)
