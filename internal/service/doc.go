// Package service coordinates the engine, the loaded model, and the applied
// adapter behind a single serialized work queue. It is structured into small
// files by concern:
//
//   - service.go: core Service type, constructor, Ready/Status/Close.
//   - config.go: Config and package defaults; New applies defaults.
//   - admission.go: FIFO queueing and single in-flight admission.
//   - model.go: model and context lifecycle (LoadModel, UnloadModel) and
//     the model catalog (Models).
//   - adapter.go: adapter lifecycle (create, load, save, remove).
//   - generate.go: generation entry points (bulk and streaming).
//   - train.go: training entry point (dataset, trainer loop, optional save).
//
// External packages should treat this package as the orchestration layer and
// use public methods only. Internal state is subject to change.
package service
