package glrender

const terrainVertexShader = `
#version 410 core

layout (location = 0) in vec3 aPosition;
layout (location = 1) in vec3 aNormal;
layout (location = 2) in float aShade;

uniform mat4 uViewProj;
uniform vec3 uEye;
// xy: world origin of the bound texture tile, zw: its extent
uniform vec4 uTileRect;

out vec2 vTexCoord;
out float vShade;
out float vDistance;

void main() {
	vTexCoord = (aPosition.xy - uTileRect.xy) / uTileRect.zw;
	vShade = aShade;
	vDistance = distance(aPosition, uEye);
	gl_Position = uViewProj * vec4(aPosition, 1.0);
}
`

const terrainFragmentShader = `
#version 410 core

in vec2 vTexCoord;
in float vShade;
in float vDistance;

uniform sampler2D uTexture;
uniform int uTextured;
uniform vec3 uBaseColor;
uniform vec3 uFogColor;
uniform float uFogNear;
uniform float uFogFar;

out vec4 FragColor;

void main() {
	vec3 color = uBaseColor;
	if (uTextured == 1) {
		color = texture(uTexture, vTexCoord).rgb;
	}
	color *= vShade;

	float fog = clamp((vDistance - uFogNear) / max(uFogFar - uFogNear, 0.001), 0.0, 1.0);
	FragColor = vec4(mix(color, uFogColor, fog), 1.0);
}
`
