package common

const ServiceName = "go-dvm"
