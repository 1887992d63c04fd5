// Argus - Multi-Camera Risk Detection and Alerting
// Copyright 2026 D. Almeida (argus-vision)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/argus-vision/argus

// Package models defines the shared data model of the Argus pipeline:
// cameras and conflict zones from the catalog, frames produced by the
// sampler, detections produced by the detection engine, and the alerts and
// clips they aggregate into.
//
// Types here are plain data carriers. Behavior lives in the packages that
// own each stage (resolver, sampler, detect, alerting, recorder, session).
package models
