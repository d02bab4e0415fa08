package virtio

import "errors"

var errUnsupportedFeatures = errors.New("virtio: device does not support required features")
var errFeaturesNotAccepted = errors.New("virtio: device rejected feature negotiation")
var errFrameTooLarge = errors.New("virtio: frame exceeds queue buffer size")
