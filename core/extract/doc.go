// Package extract turns free-form model responses into typed results.
//
// Every extractor is configured with a [Shape] and applies the same strategy
// skeleton in a fixed order, stopping at the first success:
//
//  1. Tag-delimited block ([StrategyTagged]). Shapes with a required tag fail
//     immediately when the markers are missing.
//  2. Markdown fence ([StrategyFenced]) labeled with the expected sub-language.
//  3. Direct structural parse ([StrategyDirect]) of the remaining text as a JSON
//     object, a list, bare SQL or plain text.
//  4. Regex salvage ([StrategySalvage]) of quoted "key": "value" pairs. Only
//     JSON shapes that opt in may use it.
//
// Model-family dialects are registered as named extractors in a [Registry];
// callers look them up by name and never see the dialect details.
package extract
