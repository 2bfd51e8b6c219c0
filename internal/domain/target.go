package domain

// TargetKind distinguishes the two recipient shapes.
type TargetKind string

const (
	TargetKindDevices TargetKind = "device"
	TargetKindTopic   TargetKind = "topic"
)

// Target is a tagged union over the two recipient specifications: a device
// token collection or a topic. The zero Target carries neither; "both" is
// unrepresentable by construction.
type Target struct {
	devices *DeviceTokenCollection
	topic   *Topic
}

func DeviceTarget(devices *DeviceTokenCollection) Target {
	return Target{devices: devices}
}

func TopicTarget(topic Topic) Target {
	return Target{topic: &topic}
}

func (t Target) IsZero() bool { return t.devices == nil && t.topic == nil }

func (t Target) Kind() TargetKind {
	if t.topic != nil {
		return TargetKindTopic
	}
	return TargetKindDevices
}

func (t Target) Devices() (*DeviceTokenCollection, bool) {
	return t.devices, t.devices != nil
}

func (t Target) Topic() (Topic, bool) {
	if t.topic == nil {
		return Topic{}, false
	}
	return *t.topic, true
}

// Count returns the number of logical targets: the token count for devices,
// exactly one for a topic regardless of its subscriber set.
func (t Target) Count() int {
	switch {
	case t.devices != nil:
		return t.devices.Count()
	case t.topic != nil:
		return 1
	default:
		return 0
	}
}
